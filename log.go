package txnset

import (
	"fmt"

	"github.com/bnclabs/golog"
)

// logprefix builds the "txnset[<name>]" tag every log line carries,
// matching llrb.go's "LLRB [%s]" convention.
func logprefix(name string) string {
	return fmt.Sprintf("txnset[%s]", name)
}

func logCreated(prefix string) {
	log.Infof("%v created\n", prefix)
}

func logAbort(prefix string, status Status) {
	log.Warnf("%v transaction aborted: %v\n", prefix, status)
}

func logConflict(prefix string, id interface{}) {
	log.Debugf("%v watch conflict on %v\n", prefix, id)
}
