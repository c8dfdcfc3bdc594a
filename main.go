// entry point of the application
package main

import "vidfetch/cmd"

func main() {
	cmd.Execute()
}
