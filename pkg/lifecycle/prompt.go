package lifecycle

import (
	"fmt"
	"io"
)

const AnsiClearLine = "\033[2K\n"

func gracefulShutdownPrompt(out io.Writer) {
	fmt.Fprint(out, AnsiClearLine+"Draining in-flight work, send the signal again to exit immediately.\n")
}
