package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail is Exit(1) for a failed step.
func Fail(step string, err error) cli.ExitCoder {
	return Exit(1, "%s: %s", step, Red(err))
}
