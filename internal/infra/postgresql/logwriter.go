package postgresql

import (
	"fmt"

	"go.uber.org/zap"
)

// gormLogWriter routes gorm's slow-query and error lines through the global
// zap logger, which cmd/api replaces with the configured one.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...any) {
	zap.L().Named("gorm").Warn(fmt.Sprintf(format, args...))
}
