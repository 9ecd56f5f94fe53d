package cmd

import (
	"fmt"
)

const banner = `
                     _     _                    
  _ __ ___   ___  __ _| | __| |_ __ __ ___      __
 | '_ ` + "`" + ` _ \ / _ \/ _` + "`" + ` | |/ _` + "`" + ` | '__/ _` + "`" + ` \ \ /\ / /
 | | | | | |  __/ (_| | | (_| | | | (_| |\ V  V / 
 |_| |_| |_|\___|\__,_|_|\__,_|_|  \__,_| \_/\_/  
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Development backend - Version %s\x1b[0m\n\n", Version)
}
