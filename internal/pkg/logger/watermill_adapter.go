package logger

import "github.com/ThreeDotsLabs/watermill"

// WatermillAdapter routes watermill's internal logs into an ILogger.
type WatermillAdapter struct {
	logger ILogger
	module string
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

func NewWatermillAdapter(log ILogger, module string) *WatermillAdapter {
	return &WatermillAdapter{logger: log, module: module}
}

func (a *WatermillAdapter) details(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(a.fields)+len(fields))
	for k, v := range a.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	d := a.details(fields)
	if err != nil {
		d["error"] = err.Error()
	}
	a.logger.Error(a.module, msg, d)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(a.module, msg, a.details(fields))
}

// Trace is noisy (one line per message) and goes to debug.
func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: a.logger, module: a.module, fields: a.details(fields)}
}
