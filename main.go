// Command program-crawler crawls programme pages and serves search over the
// extracted records.
package main

import "github.com/JakeFAU/program-crawler/cmd"

func main() {
	cmd.Execute()
}
