// The main package for the pensioncrawler executable.
package main

import (
	"github.com/JakeFAU/pension-crawler/cmd"
)

func main() {
	cmd.Execute()
}
