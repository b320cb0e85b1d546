package console

import "github.com/fatih/color"

var (
	Red   = color.New(color.FgRed).SprintFunc()
	Green = color.New(color.FgGreen).SprintFunc()
	White = color.New(color.FgHiWhite).SprintFunc()
)
