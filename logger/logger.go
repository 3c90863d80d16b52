package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Info writes record with log level INFO
func Info(v ...interface{}) {
	if len(v) == 1 {
		logger.Info().Interface("message", v[0]).Send()
	} else {
		logger.Info().Msg(fmt.Sprint(v...))
	}
}

// Infof writes record with log level INFO
func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

// Debug writes record with log level DEBUG
func Debug(v ...interface{}) {
	logger.Debug().Msg(fmt.Sprint(v...))
}

// Debugf writes record with log level DEBUG
func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

// Error writes record with log level ERROR
func Error(v ...interface{}) {
	logger.Error().Msg(fmt.Sprint(v...))
}

// Errorf writes record with log level ERROR
func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

// Fatal writes record with log level FATAL and exits
func Fatal(v ...interface{}) {
	logger.Fatal().Msg(fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf writes record with log level FATAL and exits
func Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(format, v...)
	os.Exit(1)
}

// Warn writes record with log level WARN
func Warn(v ...interface{}) {
	logger.Warn().Msg(fmt.Sprint(v...))
}

// Warnf writes record with log level WARN
func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

// FileLogger writes content as json into CONFIG_FOLDER/<fileName><fileExtension>, truncating any existing file
func FileLogger(content any, fileName, fileExtension string) error {
	folder := viper.GetString("CONFIG_FOLDER")
	if folder == "" {
		return fmt.Errorf("config folder is not set")
	}

	contentBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %s", err)
	}

	fullPath := filepath.Join(folder, fileName+fileExtension)
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create or open file: %s", err)
	}
	defer file.Close()

	if _, err = file.Write(contentBytes); err != nil {
		return fmt.Errorf("failed to write data to file: %s", err)
	}

	return nil
}

// StatsLogger periodically dumps read progress into stats.json until ctx is done.
// statsFunc returns yielded rows, scanned events and the current binlog position.
func StatsLogger(ctx context.Context, statsFunc func() (int64, int64, string)) {
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				Debug("stats monitoring stopped")
				return
			case <-ticker.C:
				processed, scanned, position := statsFunc()
				memStats := new(runtime.MemStats)
				runtime.ReadMemStats(memStats)
				elapsed := time.Since(startTime).Seconds()
				stats := map[string]interface{}{
					"Processed Rows":  processed,
					"Scanned Events":  scanned,
					"Position":        position,
					"Memory":          fmt.Sprintf("%d mb", memStats.HeapInuse/(1024*1024)),
					"Speed":           fmt.Sprintf("%.2f rps", float64(processed)/elapsed),
					"Seconds Elapsed": fmt.Sprintf("%.2f", elapsed),
				}
				if err := FileLogger(stats, "stats", ".json"); err != nil {
					Warnf("failed to write stats in file: %s", err)
				}
			}
		}
	}()
}

// Init sets up console logging on stderr (stdout is reserved for sql output) and,
// when CONFIG_FOLDER is set, a rotating log file next to the config.
func Init() {
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	var currentLevel string
	logColors := map[string]string{
		"debug": "\033[36m",
		"info":  "\033[32m",
		"warn":  "\033[33m",
		"error": "\033[31m",
		"fatal": "\033[31m",
	}
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)
			currentLevel = level
			return fmt.Sprintf("%s%s\033[0m", logColors[level], strings.ToUpper(level))
		},
		FormatMessage: func(i interface{}) string {
			var msg string
			switch v := i.(type) {
			case string:
				msg = v
			case nil:
				return ""
			default:
				jsonMsg, err := json.Marshal(v)
				if err != nil {
					return err.Error()
				}
				return string(jsonMsg)
			}
			if currentLevel == zerolog.ErrorLevel.String() || currentLevel == zerolog.FatalLevel.String() {
				msg = fmt.Sprintf("\033[31m%s\033[0m", msg)
			}
			return msg
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
	}

	writers := []io.Writer{console}
	if folder := viper.GetString("CONFIG_FOLDER"); folder != "" {
		timestamp := time.Now().UTC().Format("2006-01-02_15-04-05")
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(folder, "logs", "read_"+timestamp, "binlogdir.log"),
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
}
