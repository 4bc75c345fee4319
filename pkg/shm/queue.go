package shm

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned when a bounded queue cannot accept another entry.
var ErrQueueFull = errors.New("queue full")

// EnqueueReady places idx at the tail of the ready queue. The caller must
// have already checked capacity; exceeding MaxJobs is undefined behavior.
func EnqueueReady(s *SharedState, idx int32) {
	s.ReadyQueue[s.RQTail] = idx
	s.RQTail = (s.RQTail + 1) % MaxJobs
	s.RQSize++
}

// DequeueReady pops the head of the ready queue, returning (0, false) when
// empty.
func DequeueReady(s *SharedState) (int32, bool) {
	if s.RQSize == 0 {
		return 0, false
	}
	idx := s.ReadyQueue[s.RQHead]
	s.RQHead = (s.RQHead + 1) % MaxJobs
	s.RQSize--
	return idx, true
}

// ReadyAt returns the job index idxFromHead entries into the ready queue,
// used to account waiting time for every still-queued job once per tick.
func ReadyAt(s *SharedState, idxFromHead int32) int32 {
	return s.ReadyQueue[(s.RQHead+idxFromHead)%MaxJobs]
}

// Submit appends path to the submission queue, front-end side only. It
// fails with ErrQueueFull when the submission queue is at capacity, or when
// job_count+submission_size would exceed MaxJobs.
func Submit(s *SharedState, path string) error {
	if s.SQSize >= MaxJobs {
		return fmt.Errorf("%w: submission queue is full", ErrQueueFull)
	}
	if int(s.JobCount)+int(s.SQSize) >= MaxJobs {
		return fmt.Errorf("%w: maximum total jobs (%d) would be exceeded", ErrQueueFull, MaxJobs)
	}
	var buf [NameSize]byte
	n := copy(buf[:NameSize-1], path)
	buf[n] = 0
	s.SubmitQueue[s.SQTail] = buf
	s.SQTail = (s.SQTail + 1) % MaxJobs
	s.SQSize++
	return nil
}

// DequeueSubmission pops the head of the submission queue, scheduler side
// only. It returns ("", false) when empty.
func DequeueSubmission(s *SharedState) (string, bool) {
	if s.SQSize == 0 {
		return "", false
	}
	buf := s.SubmitQueue[s.SQHead]
	s.SQHead = (s.SQHead + 1) % MaxJobs
	s.SQSize--
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), true
}
