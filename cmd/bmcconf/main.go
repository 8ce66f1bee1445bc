/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/comcast/bmcconf/bmc"
	"github.com/comcast/bmcconf/buildinfo"
	"github.com/comcast/bmcconf/common"
	"github.com/comcast/bmcconf/config"
	"github.com/comcast/bmcconf/logger"
	"github.com/comcast/bmcconf/metrics"
	"github.com/comcast/bmcconf/runner"
	cm_vault "github.com/comcast/bmcconf/vault"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	app = "bmcconf"
)

var (
	a                  = kingpin.New(app, "configure BIOS settings, boot order, power and accounts of Dell iDRAC and HPE iLO controllers over redfish")
	envFile            = a.Flag("env-file", "dotenv file loaded into the environment before flags are read").Default("").Envar("BMCCONF_ENV_FILE").String()
	username           = a.Flag("user", "BMC static username").Default("").Envar("BMC_USERNAME").String()
	password           = a.Flag("password", "BMC static password").Default("").Envar("BMC_PASSWORD").String()
	bmcTimeout         = a.Flag("timeout", "BMC request timeout").Default("60s").Envar("BMC_TIMEOUT").Duration()
	bmcScheme          = a.Flag("scheme", "BMC Scheme to use").Default("https").Envar("BMC_SCHEME").String()
	insecureSkipVerify = a.Flag("insecure-skip-verify", "Skip TLS verification").Default("false").Envar("INSECURE_SKIP_VERIFY").Bool()
	basicAuth          = a.Flag("basic-auth", "send credentials with every request instead of opening a redfish session").Default("false").Envar("BMC_BASIC_AUTH").Bool()
	proxyURL           = a.Flag("proxy", "proxy url used for every BMC request, overrides HTTPS_PROXY and NO_PROXY").Default("").Envar("BMC_PROXY").String()
	vendor             = a.Flag("vendor", "force the vendor driver instead of detecting it").PlaceHolder("[dell|hpe]").Default("").Envar("BMC_VENDOR").Enum("", bmc.VendorDell, bmc.VendorHPE)
	concurrency        = a.Flag("concurrency", "number of targets configured in parallel").Default("1").Envar("CONCURRENCY").Int()
	pollInterval       = a.Flag("poll-interval", "interval between state checks while waiting").Default("1s").Envar("POLL_INTERVAL").Duration()
	postTimeout        = a.Flag("post-timeout", "how long to wait for the server to finish POST").Default("10m").Envar("POST_TIMEOUT").Duration()
	powerTimeout       = a.Flag("power-timeout", "how long to wait for a power state change").Default("10m").Envar("POWER_TIMEOUT").Duration()
	jobTimeout         = a.Flag("job-timeout", "how long to wait for a BIOS configuration job").Default("30m").Envar("JOB_TIMEOUT").Duration()
	serverNameFormat   = a.Flag("server-name-format", "format of the HPE ServerName BIOS attribute, receives the asset tag").Default("mgmt-%s").Envar("SERVER_NAME_FORMAT").String()
	hosts              = a.Flag("target", "BMC host to configure, repeatable").Short('t').Envar("BMC_TARGETS").Strings()
	assetTag           = a.Flag("asset-tag", "asset tag of the target, only with a single --target").Default("").Envar("ASSET_TAG").String()
	credentialProfile  = a.Flag("credential-profile", "credential profile used for every --target").Default("").Envar("CREDENTIAL_PROFILE").String()
	inventoryPath      = a.Flag("inventory", "YAML or JSON file listing the targets").Default("").Envar("INVENTORY").String()
	metricsTextfile    = a.Flag("metrics.textfile", "write run metrics to this file for the node_exporter textfile collector").Default("").Envar("METRICS_TEXTFILE").String()
	logLevel           = a.Flag("log.level", "log level verbosity").PlaceHolder("[debug|info|warn|error]").Default("info").Envar("LOG_LEVEL").String()
	logFormat          = a.Flag("log.format", "log encoding on stderr").PlaceHolder("[json|console]").Default("json").Envar("LOG_FORMAT").String()
	logMethod          = a.Flag("log.method", "alternative method for logging in addition to stderr").PlaceHolder("[file|vector]").Default("").Envar("LOG_METHOD").String()
	logFilePath        = a.Flag("log.file-path", "directory path where log files are written if log-method is file").Default("/var/log/bmcconf").Envar("LOG_FILE_PATH").String()
	logFileMaxSize     = a.Flag("log.file-max-size", "max file size in megabytes if log-method is file").Default("256").Envar("LOG_FILE_MAX_SIZE").String()
	logFileMaxBackups  = a.Flag("log.file-max-backups", "max file backups before they are rotated if log-method is file").Default("1").Envar("LOG_FILE_MAX_BACKUPS").String()
	logFileMaxAge      = a.Flag("log.file-max-age", "max file age in days before they are rotated if log-method is file").Default("1").Envar("LOG_FILE_MAX_AGE").String()
	vectorEndpoint     = a.Flag("vector.endpoint", "vector endpoint to send structured json logs to").Default("http://0.0.0.0:4444").Envar("VECTOR_ENDPOINT").String()
	vaultAddr          = a.Flag("vault.addr", "Vault instance address to get BMC credentials from").Default("https://vault.com").Envar("VAULT_ADDRESS").String()
	vaultRoleId        = a.Flag("vault.role-id", "Vault Role ID for AppRole").Default("").Envar("VAULT_ROLE_ID").String()
	vaultSecretId      = a.Flag("vault.secret-id", "Vault Secret ID for AppRole").Default("").Envar("VAULT_SECRET_ID").String()
	profiles           = common.CredentialProf(a.Flag("credentials.profiles",
		`profile(s) with all necessary parameters to obtain BMC credential from secrets backend, i.e.
  --credentials.profiles="
    profiles:
      - name: profile1
        mountPath: "kv2"
        path: "path/to/secret"
        userField: "user"
        passwordField: "password"
      ...
  "
--credentials.profiles='{"profiles":[{"name":"profile1","mountPath":"kv2","path":"path/to/secret","userField":"user","passwordField":"password"},...]}'`).Envar("CREDENTIALS_PROFILES"))

	applyCmd        = a.Command("apply", "apply BIOS attributes from a file")
	applyAttributes = applyCmd.Flag("attributes", "JSON or YAML file of BIOS attributes").Short('f').Required().Envar("BIOS_ATTRIBUTES").String()
	applyDefaults   = applyCmd.Flag("defaults", "reset the BIOS to factory defaults first").Default("false").Envar("BIOS_DEFAULTS").Bool()
	applyReboot     = applyCmd.Flag("reboot", "reboot after committing the settings").Default("false").Envar("REBOOT").Bool()
	applyResetType  = applyCmd.Flag("reset-type", "reset type used to reboot").Default(runner.ResetForceRestart).Envar("RESET_TYPE").Enum(runner.ResetTypes...)
	applyWaitJob    = applyCmd.Flag("wait-job", "wait for the BIOS configuration job to finish").Default("false").Envar("WAIT_JOB").Bool()

	bootCmd       = a.Command("boot-order", "put the primary disk first and the management NIC second in the boot sequence")
	bootDryRun    = bootCmd.Flag("dry-run", "print the new boot sequence without applying it").Default("false").Envar("DRY_RUN").Bool()
	bootNICAuto   = bootCmd.Flag("nic-auto", "promote the first 1 Gbps interface instead of the integrated management ports").Default("false").Envar("NIC_AUTO").Bool()
	bootReboot    = bootCmd.Flag("reboot", "reboot after committing the boot sequence").Default("false").Envar("REBOOT").Bool()
	bootResetType = bootCmd.Flag("reset-type", "reset type used to reboot").Default(runner.ResetForceRestart).Envar("RESET_TYPE").Enum(runner.ResetTypes...)
	bootWaitJob   = bootCmd.Flag("wait-job", "wait for the BIOS configuration job to finish").Default("false").Envar("WAIT_JOB").Bool()

	powerCmd    = a.Command("power", "show the power state or send a reset")
	powerAction = powerCmd.Arg("action", "status or a redfish reset type").Default(runner.PowerStatus).Enum(append([]string{runner.PowerStatus}, runner.ResetTypes...)...)
	powerWait   = powerCmd.Flag("wait", "wait for the power state the reset ends in").Default("false").Envar("POWER_WAIT").Bool()

	rotateCmd      = a.Command("rotate-password", "set a new password on a controller account")
	rotateUser     = rotateCmd.Flag("account", "account to change").Default("Administrator").Envar("ROTATE_ACCOUNT").String()
	rotatePassword = rotateCmd.Flag("new-password", "new password").Default("").Envar("ROTATE_PASSWORD").String()
	rotateProfile  = rotateCmd.Flag("new-password-profile", "credential profile holding the new password").Default("").Envar("ROTATE_PROFILE").String()

	versionCmd  = a.Command("version", "print build information")
	versionJSON = versionCmd.Flag("json", "print build information as JSON").Default("false").Envar("VERSION_JSON").Bool()

	log *zap.Logger
)

func main() {
	os.Exit(run())
}

func run() int {
	a.HelpFlag.Short('h')

	if path := envFileArg(os.Args[1:]); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "error loading env file %s - %s\n", path, err.Error())
			return 1
		}
	}

	cmd, err := a.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing argument flags - %s\n", err.Error())
		return 1
	}

	if cmd == versionCmd.FullCommand() {
		if *versionJSON {
			err = buildinfo.JSON(os.Stdout)
		} else {
			err = buildinfo.Print(os.Stdout)
		}
		if err != nil {
			return 1
		}
		return 0
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}

	logConfig, err := loggerConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}

	err = logger.Initialize(app, hostname, logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger - log_method=%s vector_endpoint=%s log_file_path=%s - err=%s\n",
			*logMethod, *vectorEndpoint, *logFilePath, err.Error())
		return 1
	}

	log = zap.L()
	defer logger.Flush()

	if *envFile != "" {
		log.Info("loaded env file", zap.String("env_file", *envFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *proxyURL != "" {
		ctx = bmc.WithProxyURL(ctx, *proxyURL)
	}

	targets, err := buildTargets(*hosts, *assetTag, *credentialProfile, *inventoryPath)
	if err != nil {
		log.Error("no targets to configure", zap.Error(err))
		return 1
	}

	workflow, err := buildWorkflow(cmd)
	if err != nil {
		log.Error("invalid command arguments", zap.String("command", cmd), zap.Error(err))
		return 1
	}

	// configure vault client if vaultRoleId & vaultSecretId are set
	var secrets common.SecretReader
	if *vaultRoleId != "" && *vaultSecretId != "" {
		vault, err := cm_vault.NewVaultAppRoleClient(
			ctx,
			cm_vault.Parameters{
				Address:         *vaultAddr,
				ApproleRoleID:   *vaultRoleId,
				ApproleSecretID: *vaultSecretId,
			},
		)
		if err != nil {
			log.Error("failed initializing vault client", zap.Error(err),
				zap.String("vault_address", *vaultAddr),
				zap.String("vault_role_id", *vaultRoleId))
			return 1
		}

		if err := vault.Login(ctx); err != nil {
			log.Error("failed logging in to vault", zap.Error(err),
				zap.String("vault_address", *vaultAddr),
				zap.String("vault_role_id", *vaultRoleId))
			return 1
		}
		defer vault.Close(context.Background())

		secrets = vault
	}

	cfg := config.Default()
	cfg.BMCScheme = *bmcScheme
	cfg.BMCTimeout = *bmcTimeout
	cfg.InsecureSkipVerify = *insecureSkipVerify
	cfg.BasicAuth = *basicAuth
	cfg.User = *username
	cfg.Pass = *password
	cfg.Vendor = *vendor
	cfg.Concurrency = *concurrency
	cfg.PollInterval = *pollInterval
	cfg.PostTimeout = *postTimeout
	cfg.PowerTimeout = *powerTimeout
	cfg.JobTimeout = *jobTimeout
	cfg.ServerNameFormat = *serverNameFormat

	creds := common.NewCredentials(common.Credential{User: cfg.User, Pass: cfg.Pass}, profiles, secrets)
	rec := metrics.NewRecorder()

	r := runner.New(cfg, creds, rec, os.Stdout)
	runErr := r.Run(ctx, targets, workflow)

	if *metricsTextfile != "" {
		if err := rec.WriteTextfile(*metricsTextfile); err != nil {
			log.Error("failed writing metrics textfile", zap.String("path", *metricsTextfile), zap.Error(err))
		}
	}

	if runErr != nil {
		log.Error("run finished with failures", zap.String("trace_id", r.RunID), zap.Error(runErr))
		return 1
	}
	return 0
}

func loggerConfig() (logger.LoggerConfig, error) {
	// validate logFilePath exists and is a directory
	if *logMethod == "file" {
		fd, err := os.Stat(*logFilePath)
		if err != nil {
			return logger.LoggerConfig{}, err
		}
		if !fd.IsDir() {
			return logger.LoggerConfig{}, fmt.Errorf("%s is not a directory", *logFilePath)
		}
	}

	logfileMaxSize, err := strconv.Atoi(*logFileMaxSize)
	if err != nil {
		return logger.LoggerConfig{}, fmt.Errorf("error converting arg --log.file-max-size to int - %s", err.Error())
	}

	logfileMaxBackups, err := strconv.Atoi(*logFileMaxBackups)
	if err != nil {
		return logger.LoggerConfig{}, fmt.Errorf("error converting arg --log.file-max-backups to int - %s", err.Error())
	}

	logfileMaxAge, err := strconv.Atoi(*logFileMaxAge)
	if err != nil {
		return logger.LoggerConfig{}, fmt.Errorf("error converting arg --log.file-max-age to int - %s", err.Error())
	}

	return logger.LoggerConfig{
		LogLevel:  *logLevel,
		LogFormat: *logFormat,
		LogMethod: *logMethod,
		LogFile: logger.LogFile{
			Path:       *logFilePath,
			MaxSize:    logfileMaxSize,
			MaxBackups: logfileMaxBackups,
			MaxAge:     logfileMaxAge,
		},
		VectorEndpoint: *vectorEndpoint,
	}, nil
}

func buildWorkflow(cmd string) (runner.Workflow, error) {
	switch cmd {
	case applyCmd.FullCommand():
		attrs, err := config.LoadAttributes(*applyAttributes)
		if err != nil {
			return nil, err
		}
		return runner.ApplyBios{
			Reboot: runner.Reboot{
				Reboot:    *applyReboot,
				ResetType: *applyResetType,
				WaitJob:   *applyWaitJob,
			},
			Attributes: attrs,
			Defaults:   *applyDefaults,
		}, nil
	case bootCmd.FullCommand():
		return runner.BootOrder{
			Reboot: runner.Reboot{
				Reboot:    *bootReboot,
				ResetType: *bootResetType,
				WaitJob:   *bootWaitJob,
			},
			DryRun:  *bootDryRun,
			NICAuto: *bootNICAuto,
		}, nil
	case powerCmd.FullCommand():
		return runner.Power{
			Action: *powerAction,
			Wait:   *powerWait,
		}, nil
	case rotateCmd.FullCommand():
		if *rotatePassword == "" && *rotateProfile == "" {
			return nil, fmt.Errorf("one of --new-password or --new-password-profile is required")
		}
		return runner.RotatePassword{
			UserName: *rotateUser,
			Password: *rotatePassword,
			Profile:  *rotateProfile,
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}
