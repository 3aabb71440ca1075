// Command jobscout scrapes job boards into a single listing store.
package main

import "github.com/JakeFAU/jobscout/cmd"

func main() {
	cmd.Execute()
}
