package formatter

import (
	"fmt"
	"path"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"

	mbcontext "github.com/meshboardio/meshboard/server/context"
)

// ContextHook adds the call-site source path and the request-scoped trace
// fields (requestID, agentID) to every log entry.
type ContextHook struct {
	goModuleName string
}

// NewContextHook instantiates a new context hook
func NewContextHook() *ContextHook {
	hook := &ContextHook{}
	hook.goModuleName = hook.moduleName() + "/"
	return hook
}

// Levels set the supported levels for this hook
func (hook ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire extends entry.Data with the source path and context trace fields
func (hook ContextHook) Fire(entry *logrus.Entry) error {
	if entry.Caller != nil {
		src := hook.parseSrc(entry.Caller.File)
		entry.Data["source"] = fmt.Sprintf("%s:%v", src, entry.Caller.Line)
	}

	if entry.Context == nil {
		return nil
	}
	if requestID, ok := mbcontext.RequestID(entry.Context); ok {
		entry.Data["requestID"] = requestID
	}
	if agentID, ok := mbcontext.AgentID(entry.Context); ok {
		entry.Data["agentID"] = agentID
	}
	return nil
}

func (hook ContextHook) moduleName() string {
	info, ok := debug.ReadBuildInfo()
	if ok && info.Main.Path != "" {
		return info.Main.Path
	}

	return "meshboard"
}

func (hook ContextHook) parseSrc(filePath string) string {
	name := strings.SplitAfter(filePath, hook.goModuleName)
	if len(name) > 1 {
		return name[len(name)-1]
	}

	// in case of forked repo
	name = strings.SplitAfter(filePath, "meshboard/")
	if len(name) > 1 {
		return name[len(name)-1]
	}

	// in case the log entry comes from an external pkg
	_, pkg := path.Split(path.Dir(filePath))
	file := path.Base(filePath)
	return fmt.Sprintf("%s/%s", pkg, file)
}
