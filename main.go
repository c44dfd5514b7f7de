package main

import (
	"github.com/facchinm/aktualizr-lite/cmd"
	"github.com/facchinm/aktualizr-lite/pkg/version"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

func main() {
	version.Set(buildVersion, buildCommit, buildDate)
	cmd.Execute()
}
