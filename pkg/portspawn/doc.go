// Package portspawn multiplexes device ports for automated hardware
// testing: each Port runs a background reader that continuously drains
// a raw endpoint (a serial device, a local process, or any byte
// stream) into an in-memory cache, appends everything to a line-based
// log file, and lets tests block on regular-expression matches against
// the accumulated output.
//
// A typical session opens a device, waits for a boot marker and sends
// a command:
//
//	port, err := portspawn.OpenSerial(portspawn.SerialConfig{
//		Device:   "/dev/ttyUSB0",
//		BaudRate: 115200,
//	}, portspawn.WithLogFile("dut.log"))
//	if err != nil {
//		return err
//	}
//	defer port.Close()
//
//	if _, err := port.Expect(regexp.MustCompile(`boot complete`), 30*time.Second); err != nil {
//		return err
//	}
//	if err := port.WriteLine("version"); err != nil {
//		return err
//	}
//	m, err := port.Expect(regexp.MustCompile(`v(\d+\.\d+)`), 5*time.Second)
//	if err != nil {
//		return err
//	}
//	fmt.Println("firmware", m.GroupText(1))
//
// Expect consumes output through the end of the match, so sequential
// expects walk forward through the stream in order. On timeout the
// returned error wraps ErrExpectTimeout and carries whatever was
// buffered, which makes failure logs self-explanatory.
//
// Redirection can be paused to hand the raw endpoint to an external
// tool, such as a flasher that needs exclusive device access:
//
//	err := port.PauseRedirect(func() error {
//		return flash(port.Endpoint())
//	})
package portspawn
