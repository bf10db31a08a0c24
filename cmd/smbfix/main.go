// Command smbfix renames files and directories whose names an SMB share
// cannot store, and raises their permissions to a usable baseline.
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
