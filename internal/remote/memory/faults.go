package memory

import "fmt"

// FailWrites makes every following Set and Delete return err. Nil clears it.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailReads makes every following Get return err. Nil clears it.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailListen makes every following Listen return err. Nil clears it.
func (s *Store) FailListen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenErr = err
}

// BreakListeners terminates every listener on collection with err
func (s *Store) BreakListeners(collection string, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for l := range s.listeners[collection] {
		select {
		case l.failed <- fmt.Errorf("listen %s: %w", collection, err):
			n++
		default:
		}
	}
	return n
}

// Writes returns the number of Set and Delete calls so far
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Reads returns the number of Get calls so far
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ResetCounters zeroes the read and write counters
func (s *Store) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads, s.writes = 0, 0
}

// ActiveListeners returns the number of running listeners on collection
func (s *Store) ActiveListeners(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[collection])
}
