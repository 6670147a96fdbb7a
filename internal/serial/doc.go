// Package serial connects Neurite to a UART.
//
// The port is read by Pump on its own goroutine, which hands each byte to the
// command pipeline (the producer side of its ring). Messages received from
// the broker are written back to the same port.
//
//	port, err := serial.Open(cfg.Serial)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//	go port.Pump(ctx, node)
package serial
