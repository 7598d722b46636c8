package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/topocare/iota-pay-on-production/lib/config"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"github.com/topocare/iota-pay-on-production/wallet"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

const CONFIG_FILE = "tbwallet.yml"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   PREFIX_MODULE,
		Short: "Machine wallet: turns customer deposits into production units and pays per service",
	}
	root.PersistentFlags().StringVar(&configFile, "config", CONFIG_FILE, "config file, looked up in the working directory, then in $"+config.DataDirEnv)
	root.AddCommand(runCmd(), scanCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the wallet with periodic maintenance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mustReadMasterConfig(configFile)
			return runWallet()
		},
	}
}

func scanCmd() *cobra.Command {
	var first, last uint64
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print balance and spent state of wallet addresses in the key index range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mustReadMasterConfig(configFile)
			return scanAddresses(first, last)
		},
	}
	cmd.Flags().Uint64Var(&first, "first", 0, "first key index")
	cmd.Flags().Uint64Var(&last, "last", 99, "last key index")
	return cmd
}

func newClient(reg prometheus.Registerer) (*ledger.IotaClient, error) {
	var aec utils.ErrorCounter = &utils.DummyAEC{}
	if reg != nil {
		aec = utils.NewAPIErrorCounter(reg)
	}
	params, err := iotaClientParams(aec)
	if err != nil {
		return nil, err
	}
	return ledger.NewIotaClient(params)
}

func runWallet() error {
	var reg prometheus.Registerer
	if Config.Prometheus.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	client, err := newClient(reg)
	if err != nil {
		return err
	}
	params, layout, err := walletParams()
	if err != nil {
		return err
	}
	var metrics *wallet.Metrics
	if Config.Prometheus.Enabled {
		metrics = wallet.NewMetrics(reg)
		go exposeMetrics(Config.Prometheus.ScrapeTargetPort)
	}
	w, err := wallet.New(client, params, layout, wallet.WithLogger(log), wallet.WithMetrics(metrics))
	if err != nil {
		return err
	}
	if Config.UpdatePublisher.Enabled {
		pub, err := startUpdatePublisher(w, Config.UpdatePublisher.OutputPort)
		if err != nil {
			return err
		}
		defer pub.Close()
	}
	w.Subscribe(func(upd *wallet.StateUpdate) {
		log.Infof("Wallet state #%d: %v (machine usable: %v). Production units: %d, pending bundles: %d",
			upd.Seq, upd.State, upd.State.CanSpend(), upd.Stats.Production.Current.Count, upd.Stats.Manager.Pending)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log.Infof("Starting wallet. Maintenance every %v", params.MaintenanceInterval)
	w.Run(ctx)
	log.Info("Ciao")
	return nil
}

func scanAddresses(first, last uint64) error {
	if last < first {
		return fmt.Errorf("wrong key index range %d..%d", first, last)
	}
	client, err := newClient(nil)
	if err != nil {
		return err
	}
	params, _, err := walletParams()
	if err != nil {
		return err
	}
	factory, err := address.NewFactory(client, params.Seed, params.Security, first, log)
	if err != nil {
		return err
	}
	addrs, err := factory.Range(first, last, 0)
	if err != nil {
		return err
	}
	hashes := address.HashesOf(addrs)
	balances, err := client.GetBalances(hashes)
	if err != nil {
		return err
	}
	spent, err := client.WereAddressesSpentFrom(hashes)
	if err != nil {
		return err
	}
	var total uint64
	for i, a := range addrs {
		if balances[i] == 0 && !spent[i] {
			continue
		}
		total += balances[i]
		fmt.Printf("%6d  %v  balance: %d i  spent: %v\n", a.KeyIndex, a.WithChecksum, balances[i], spent[i])
	}
	fmt.Printf("key indices %d..%d: total balance %d i\n", first, last, total)
	return nil
}
