package cmd

import "fmt"

const asciiLogo = `
   _____                      _ _ ____  _
  / ____|                    (_) |  _ \(_)
 | |     ___  _   _ _ __   ___ _| | |_) |_ _ __   ___
 | |    / _ \| | | | '_ \ / __| | |  _ <| | '_ \ / _ \
 | |___| (_) | |_| | | | | (__| | | |_) | | |_) |  __/
  \_____\___/ \__,_|_| |_|\___|_|_|____/|_| .__/ \___|
                                          | |
                                          |_|
`

// PrintLogo prints the councilpipe ASCII banner.
func PrintLogo() {
	fmt.Print(asciiLogo)
}
