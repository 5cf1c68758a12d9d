// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/dunhampa/poststand-core/cmd/pstand"

func main() {
	cmd.Execute()
}
