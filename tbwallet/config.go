package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/guards/validators"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/config"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/lib/multiapi"
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"github.com/topocare/iota-pay-on-production/wallet"
)

const (
	Version                 = "0.9"
	PREFIX_MODULE           = "tbwallet"
	ROTATE_LOG_HOURS        = 12
	ROTATE_LOG_RETAIN_HOURS = 72
	defaultLogFormat        = "%{time:2006-01-02 15:04:05.000} %{level:.4s} [%{module}] %{message}"
	defaultLogFormatDebug   = "%{time:2006-01-02 15:04:05.000} %{level:.4s} [%{module}] %{shortfile} %{message}"
)

var (
	log                  *logging.Logger
	logLevel             logging.Level
	logLevelName         string
	masterLoggingBackend logging.LeveledBackend
	logFormatter         logging.Formatter
	logInitialized       bool
)

type ConfigStructYAML struct {
	siteDataDir     string
	Logging         loggingConfigYAML   `yaml:"logging"`
	IOTA            iotaYAML            `yaml:"iota"`
	Wallet          walletYAML          `yaml:"wallet"`
	Prometheus      prometheusYAML      `yaml:"prometheus"`
	UpdatePublisher updatePublisherYAML `yaml:"updatePublisher"`
}

type loggingConfigYAML struct {
	Debug                bool   `yaml:"debug"`
	WorkingSubdir        string `yaml:"workingSubdir"`
	LogConsoleOnly       bool   `yaml:"logConsoleOnly"`
	RotateLogs           bool   `yaml:"rotateLogs"`
	LogFormat            string `yaml:"logFormat"`
	LogFormatDebug       string `yaml:"logFormatDebug"`
	DebugMultiCalls      bool   `yaml:"debugMultiCalls"`
	RuntimeStats         bool   `yaml:"logRuntimeStats"`
	RuntimeStatsInterval int    `yaml:"logRuntimeStatsInterval"`
}

type iotaYAML struct {
	Nodes             []string `yaml:"nodes"`
	NodePoW           string   `yaml:"powNode"`
	LocalPoW          bool     `yaml:"localPow"`
	TimeoutAPI        uint64   `yaml:"apiTimeout"`
	TimeoutPoW        uint64   `yaml:"powTimeout"`
	MaxCallsPerSec    int      `yaml:"maxCallsPerSec"`
	DisableMultiCalls bool     `yaml:"disableMultiCalls"`
	AddressPromote    string   `yaml:"addressPromote"`
	TxTagPromote      string   `yaml:"txTagPromote"`
}

type walletYAML struct {
	Seed                      string `yaml:"seed"`
	Security                  int    `yaml:"security"`
	Depth                     uint64 `yaml:"depth"`
	MaxDepth                  uint64 `yaml:"maxDepth"`
	MWM                       uint64 `yaml:"minWeightMagnitude"`
	ProductionUnitSize        uint64 `yaml:"productionUnitSize"`
	ProductionPoolLowerBorder int    `yaml:"productionPoolLowerBorder"`
	ProductionPoolUpperBorder int    `yaml:"productionPoolUpperBorder"`
	PromoteOrReattachAfterMin uint64 `yaml:"promoteOrReattachAfterMin"`
	MaxPromoteRounds          int    `yaml:"maxPromoteRounds"`
	MaxConfirmHours           uint64 `yaml:"maxConfirmHours"`
	Workers                   int    `yaml:"workers"`
	ReceivingAddressFirst     uint64 `yaml:"receivingAddressFirst"`
	ReceivingAddressLast      uint64 `yaml:"receivingAddressLast"`
	// scan is done if searchKeyIndexLast > 0, otherwise initialKeyIndex is used
	SearchKeyIndexFirst uint64 `yaml:"searchKeyIndexFirst"`
	SearchKeyIndexLast  uint64 `yaml:"searchKeyIndexLast"`
	InitialKeyIndex     uint64 `yaml:"initialKeyIndex"`
	OutputAddress       string `yaml:"outputAddress"`
	ReturnAddress       string `yaml:"returnAddress"`
	TxTag               string `yaml:"txTag"`
	MaintenanceEverySec uint64 `yaml:"maintenanceEverySec"`
}

type prometheusYAML struct {
	Enabled          bool `yaml:"enabled"`
	ScrapeTargetPort int  `yaml:"scrapeTargetPort"`
}

type updatePublisherYAML struct {
	Enabled    bool `yaml:"enabled"`
	OutputPort int  `yaml:"outputPort"`
}

// main config structure
var Config = ConfigStructYAML{}

func flushMsgBeforeLog(msgBeforeLog []string) {
	for _, msg := range msgBeforeLog {
		if logInitialized {
			log.Info(msg)
		} else {
			fmt.Println(msg)
		}
	}
}

func mustReadMasterConfig(configFilename string) {
	msgBeforeLog := make([]string, 0, 10)
	msgBeforeLog = append(msgBeforeLog, "---- Starting machine wallet: tbwallet ver. "+Version)
	var siteDataDir string
	var success bool
	msgBeforeLog, siteDataDir, success = config.ReadYAML(configFilename, msgBeforeLog, &Config)
	if !success {
		flushMsgBeforeLog(msgBeforeLog)
		os.Exit(1)
	}
	Config.siteDataDir = siteDataDir
	msgBeforeLog, success = configMasterLogging(msgBeforeLog)
	flushMsgBeforeLog(msgBeforeLog)
	if !success {
		os.Exit(1)
	}

	configDebugging()

	if Config.IOTA.DisableMultiCalls {
		multiapi.DisableMultiAPI()
		log.Infof("Multi calls to IOTA API are DISABLED")
	} else {
		log.Infof("Multi calls to IOTA API are ENABLED")
	}
}

func configDebugging() {
	if Config.Logging.Debug && Config.Logging.RuntimeStats {
		sl := utils.Max(5, Config.Logging.RuntimeStatsInterval)
		go func() {
			for {
				logRuntimeStats()
				time.Sleep(time.Duration(sl) * time.Second)
			}
		}()
		log.Infof("Will be logging RuntimeStats every %v sec", sl)
	}
}

func configMasterLogging(msgBeforeLog []string) ([]string, bool) {
	var logWriter io.Writer

	if Config.Logging.LogFormat == "" {
		Config.Logging.LogFormat = defaultLogFormat
	}
	if Config.Logging.LogFormatDebug == "" {
		Config.Logging.LogFormatDebug = defaultLogFormatDebug
	}
	if Config.Logging.Debug {
		logLevel = logging.DEBUG
		logLevelName = "DEBUG"
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormatDebug)
	} else {
		logLevel = logging.INFO
		logLevelName = "INFO"
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormat)
	}

	if Config.Logging.LogConsoleOnly {
		logWriter = os.Stderr
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr only", logLevelName))
	} else {
		var fout io.Writer
		var err error
		dir := path.Join(Config.siteDataDir, Config.Logging.WorkingSubdir)
		logFname := path.Join(dir, PREFIX_MODULE+".log")

		if Config.Logging.RotateLogs {
			msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Creating rotating log: %v", logFname))
			fout, err = utils.NewRotateWriter(dir, PREFIX_MODULE+".log",
				time.Duration(ROTATE_LOG_HOURS)*time.Hour,
				time.Duration(ROTATE_LOG_RETAIN_HOURS)*time.Hour)
		} else {
			fout, err = os.OpenFile(logFname, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		}
		if err != nil {
			msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Failed to open logfile %v: %v", logFname, err))
			return msgBeforeLog, false
		}
		logWriter = io.MultiWriter(os.Stderr, fout)
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr and %v", logLevelName, logFname))
	}
	log = logging.MustGetLogger("main")

	logBackend := logging.NewLogBackend(logWriter, "", 0)
	logBackendFormatter := logging.NewBackendFormatter(logBackend, logFormatter)
	masterLoggingBackend = logging.AddModuleLevel(logBackendFormatter)
	masterLoggingBackend.SetLevel(logLevel, "main")

	log.SetBackend(masterLoggingBackend)

	if Config.Logging.DebugMultiCalls {
		multiapi.SetLog(log)
		msgBeforeLog = append(msgBeforeLog, "MultiAPI module: debugging/logging is ENABLED")
	} else {
		msgBeforeLog = append(msgBeforeLog, "MultiAPI module: debugging/logging is DISABLED")
	}
	logInitialized = true
	return msgBeforeLog, true
}

func iotaClientParams(aec utils.ErrorCounter) (ledger.IotaClientParams, error) {
	c := Config.IOTA
	if len(c.Nodes) == 0 {
		return ledger.IotaClientParams{}, errors.New("no IOTA nodes configured")
	}
	ret := ledger.IotaClientParams{
		Nodes:          c.Nodes,
		NodePoW:        c.NodePoW,
		LocalPoW:       c.LocalPoW,
		TimeoutAPI:     c.TimeoutAPI,
		TimeoutPoW:     c.TimeoutPoW,
		MaxCallsPerSec: c.MaxCallsPerSec,
		PromoteAddress: Hash(c.AddressPromote),
		PromoteTag:     Trytes(c.TxTagPromote),
		Log:            log,
		AEC:            aec,
	}
	if ret.PromoteAddress != "" {
		if err := validators.Validate(validators.ValidateHashes(ret.PromoteAddress)); err != nil {
			return ret, fmt.Errorf("wrong promotion address: %v", err)
		}
	}
	if ret.PromoteTag != "" {
		ret.PromoteTag = Pad(ret.PromoteTag, consts.TagTrinarySize/3)
		if err := validators.Validate(validators.ValidateTags(ret.PromoteTag)); err != nil {
			return ret, fmt.Errorf("wrong promotion tag: %v", err)
		}
	}
	return ret, nil
}

// walletParams builds wallet parameters and address layout. Zero values take wallet defaults
func walletParams() (wallet.Params, wallet.Layout, error) {
	c := Config.Wallet
	params := wallet.Params{
		Seed:                   Trytes(c.Seed),
		Security:               consts.SecurityLevel(c.Security),
		Depth:                  c.Depth,
		MaxDepth:               c.MaxDepth,
		MWM:                    c.MWM,
		UnitSize:               c.ProductionUnitSize,
		LowerBorder:            c.ProductionPoolLowerBorder,
		UpperBorder:            c.ProductionPoolUpperBorder,
		PromoteOrReattachAfter: time.Duration(c.PromoteOrReattachAfterMin) * time.Minute,
		MaxPromoteRounds:       c.MaxPromoteRounds,
		MaxConfirmWait:         time.Duration(c.MaxConfirmHours) * time.Hour,
		Workers:                c.Workers,
		Tag:                    Trytes(c.TxTag),
		MaintenanceInterval:    time.Duration(c.MaintenanceEverySec) * time.Second,
	}
	if params.MaxPromoteRounds == 0 {
		params.MaxPromoteRounds = wallet.DefaultMaxPromoteRounds
	}
	if params.MaxConfirmWait == 0 {
		params.MaxConfirmWait = wallet.DefaultMaxConfirmWait
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return params, wallet.Layout{}, err
	}
	layout := wallet.Layout{
		ReceivingFirst:  c.ReceivingAddressFirst,
		ReceivingLast:   c.ReceivingAddressLast,
		InitialKeyIndex: c.InitialKeyIndex,
		Scan:            c.SearchKeyIndexLast > 0,
		SearchFirst:     c.SearchKeyIndexFirst,
		SearchLast:      c.SearchKeyIndexLast,
		PaymentAddress:  Hash(c.OutputAddress),
		RefundAddress:   Hash(c.ReturnAddress),
	}
	for name, addr := range map[string]Hash{"output": layout.PaymentAddress, "return": layout.RefundAddress} {
		if addr == "" {
			continue
		}
		if err := validators.Validate(validators.ValidateHashes(addr)); err != nil {
			return params, layout, fmt.Errorf("wrong %v address: %v", name, err)
		}
	}
	return params, layout, nil
}

func logRuntimeStats() {
	var mem runtime.MemStats

	runtime.ReadMemStats(&mem)
	log.Debugf("------- DEBUG:RuntimeStats MB: Alloc = %v TotalAlloc = %v Sys = %v NumGC = %v NumGoroutines = %d",
		bToMb(mem.Alloc),
		bToMb(mem.TotalAlloc),
		bToMb(mem.Sys),
		mem.NumGC,
		runtime.NumGoroutine(),
	)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
