// SPDX-License-Identifier: Apache 2.0

package main

import "github.com/nasa-itc/sdls/cmd"

func main() {
	cmd.Execute()
}
