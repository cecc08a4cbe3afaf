package spawn

// runReader is the redirect loop. It owns the endpoint's read side
// exclusively: drain with a short bounded read, push arrivals to the queue,
// hand them to the receive callback, and mirror every iteration through the
// line log so staleness flushes fire even when the stream goes quiet.
//
// The loop exits on Stop or on the first read error. Read errors never
// propagate; they surface to expect callers as silence and to operators
// through the logger, a metrics tick and a final line-log note.
func (s *Spawn) runReader() {
	defer close(s.done)
	s.logger.Debug("reader started", "port", s.Name(), "interval", s.interval)
	for {
		select {
		case <-s.stopCh:
			s.logger.Debug("reader stopping", "port", s.Name())
			return
		default:
		}

		data, err := s.ep.ReadBytes(s.interval)
		if err != nil {
			s.rec.IncReadError(s.Name())
			s.logger.Error("endpoint read failed, reader exiting",
				"port", s.Name(), "error", err)
			s.linelog.Append([]byte("<endpoint read error: " + err.Error() + ">\n"))
			return
		}
		if len(data) > 0 {
			s.queue.push(data)
			s.rec.AddBytesRead(s.Name(), len(data))
			s.deliver(data)
		}
		s.linelog.Append(data)
	}
}

// deliver hands data to the receive callback, shielding the reader loop from
// panics in user code.
func (s *Spawn) deliver(data []byte) {
	cb := s.receiveCallback()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("receive callback panicked", "port", s.Name(), "panic", r)
		}
	}()
	cb(s.Name(), data)
}
