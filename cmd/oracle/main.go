package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/imthegoodboy/AI-Oracle/pkg/server"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultPort       = "8000"
	defaultDBType     = datastore.SQLite
	shutdownTimeout   = 5 * time.Second // 5s
	defaultConfigPath = "config.yaml"
)

func handleSignal() {
	// Wait for interrupt signal to gracefully shutdown the server with
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")
}

func logInit(logLevel string) {
	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
		// include function and file
		logrus.SetReportCaller(true)
	case "dev":
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
}

// logOutput keeps stdout and, when configured, a rotated log file
func logOutput(file string) io.Closer {
	if file == "" {
		return nil
	}
	writer := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, writer))
	return writer
}

func main() {
	port := flag.String("port", defaultPort, "server listen port, default 8000")
	dbType := flag.String("dbType", string(defaultDBType), "db type sqlite|postgres|tableStore")
	configFile := flag.String("config", defaultConfigPath, "default config path")
	mode := flag.String("mode", "dev", "service work mode debug|dev|product")
	flag.Parse()
	// init log
	logInit(*mode)

	// init config
	if err := config.InitConfig(*configFile); err != nil {
		logrus.Fatal(err.Error())
	}
	if closer := logOutput(config.ConfigGlobal.LogFile); closer != nil {
		defer closer.Close()
	}
	logrus.Info("oracle start")

	// init server and start
	oracle, err := server.NewOracleServer(*port, datastore.DatastoreType(*dbType), *mode)
	if err != nil {
		logrus.Fatalf("oracle server init fail: %v", err)
	}
	go oracle.Start()

	// wait shutdown signal
	handleSignal()

	if err := oracle.Close(shutdownTimeout); err != nil {
		logrus.Fatal("Shutdown server fail")
	}

	logrus.Info("Server exited")
}
