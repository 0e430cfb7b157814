package formatter

import "github.com/sirupsen/logrus"

// SetTextFormatter sets the text formatter for a given logger.
func SetTextFormatter(logger *logrus.Logger) {
	logger.Formatter = NewTextFormatter()
	logger.ReportCaller = true
	logger.AddHook(NewContextHook())
}
