package types

import "errors"

// ErrEmptyContainer is returned when popping from a list without elements.
var ErrEmptyContainer = errors.New("list is empty")

type node struct {
	value int

	next *node
	prev *node
}

// List is a doubly linked list of ints bounded by two sentinel nodes. The
// sentinels are never removed and never handed out, so insertion and removal
// need no nil checks at either end.
//
// List is not safe for concurrent use.
type List struct {
	head node
	tail node
	size uint64
}

func NewList() *List {
	return new(List).init()
}

func (l *List) init() *List {
	l.head.prev = nil
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.tail.next = nil
	l.size = 0
	return l
}

// lazyInit makes the zero value usable.
func (l *List) lazyInit() {
	if l.head.next == nil {
		l.init()
	}
}

func (l *List) Empty() bool {
	return l.size == 0
}

func (l *List) Size() uint64 {
	return l.size
}

func (l *List) PushFront(value int) {
	l.lazyInit()
	l.insertAfter(&node{value: value}, &l.head)
}

func (l *List) PushBack(value int) {
	l.lazyInit()
	l.insertAfter(&node{value: value}, l.tail.prev)
}

func (l *List) PopFront() (int, error) {
	if l.Empty() {
		return 0, ErrEmptyContainer
	}

	return l.detach(l.head.next).value, nil
}

func (l *List) PopBack() (int, error) {
	if l.Empty() {
		return 0, ErrEmptyContainer
	}

	return l.detach(l.tail.prev).value, nil
}

// Clear removes every element. Calling it on an empty list is a no-op.
func (l *List) Clear() {
	l.lazyInit()
	for current := l.head.next; current != &l.tail; {
		next := current.next
		l.detach(current)
		current = next
	}
}

func (l *List) insertAfter(n, at *node) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
	l.size++
}

// detach is the only place where nodes leave the chain. n must be a value
// node of l.
func (l *List) detach(n *node) *node {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
	l.size--
	return n
}
