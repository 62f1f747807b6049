package errprocess

import (
	"errors"
	"fmt"

	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"go.uber.org/zap"
)

// Set logs errMsg and returns it as an error
func Set(errMsg string, fields ...zap.Field) error {
	logger.Log.Error(errMsg, fields...)
	return errors.New(errMsg)
}

// Wrap logs err under msg and returns it wrapped, keeping errors.Is working
func Wrap(msg string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", msg, err)
}
