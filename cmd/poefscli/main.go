// Command poefscli is the thin CLI front-end over the poefs VFS: given a
// local GGPK file or the online patch CDN as a source, it resolves one
// logical path to an output file (dispatching by extension) or streams
// every known path.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
