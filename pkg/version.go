package pkg

import "fmt"

var (
	// These variables are here only to show current version. They are set in makefile during build process
	XorderVersion         = "devel"
	GitRevision           = "devel"
	XorderVersionRevision = fmt.Sprintf("%s-%s", XorderVersion, GitRevision)
)
