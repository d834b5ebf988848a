// Command nbmsg runs the non-blocking exchange between endpoints and inspects
// the traces it records.
package main

import "github.com/sarchlab/nbmsg/nbmsg/cmd"

func main() {
	cmd.Execute()
}
