//go:build !unix

package rtblink

import "os"

func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
