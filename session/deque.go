package session

// indexDeque is a fixed-capacity double-ended queue of record indices.
// It never holds more entries than the records ring has slots.
type indexDeque struct {
	buf  []int32
	head int
	size int
}

func newIndexDeque(capacity int) indexDeque {
	return indexDeque{buf: make([]int32, capacity)}
}

func (d *indexDeque) empty() bool { return d.size == 0 }

func (d *indexDeque) front() int32 { return d.buf[d.head] }

func (d *indexDeque) back() int32 {
	return d.buf[(d.head+d.size-1)%len(d.buf)]
}

func (d *indexDeque) pushBack(v int32) {
	if d.size == len(d.buf) {
		panic("session: index deque overflow")
	}
	d.buf[(d.head+d.size)%len(d.buf)] = v
	d.size++
}

func (d *indexDeque) popFront() {
	d.head = (d.head + 1) % len(d.buf)
	d.size--
}

func (d *indexDeque) popBack() {
	d.size--
}

func (d *indexDeque) clear() {
	d.head = 0
	d.size = 0
}
