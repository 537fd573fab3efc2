package kv

import (
	"github.com/ValentinKolb/cedar/cmd/util"
	"github.com/ValentinKolb/cedar/lib/kv"
	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/spf13/cobra"
)

var (
	store kv.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the store configuration flags to the KV command
	util.SetupStoreFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(setexCmd)
	KeyValueCommands.AddCommand(setnxCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(expireCmd)
	KeyValueCommands.AddCommand(persistCmd)
	KeyValueCommands.AddCommand(ttlCmd)
	KeyValueCommands.AddCommand(appendCmd)
	KeyValueCommands.AddCommand(incrCmd)
	KeyValueCommands.AddCommand(decrCmd)
	KeyValueCommands.AddCommand(getsetCmd)
	KeyValueCommands.AddCommand(mgetCmd)
	KeyValueCommands.AddCommand(strlenCmd)
	KeyValueCommands.AddCommand(getrangeCmd)
	KeyValueCommands.AddCommand(setrangeCmd)
	KeyValueCommands.AddCommand(randomkeyCmd)
	KeyValueCommands.AddCommand(dumpCmd)
	KeyValueCommands.AddCommand(saveCmd)
	KeyValueCommands.AddCommand(rewriteCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openStore opens the configured store directory
func openStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	opts, err := util.GetStoreOptions()
	if err != nil {
		return err
	}

	// the CLI reports results on stdout, keep the store quiet
	opts.Logger = logger.Suppressed()

	store, err = kv.Open(opts)
	return err
}

// closeStore flushes the journal and releases the store
func closeStore(*cobra.Command, []string) error {
	if store == nil {
		return nil
	}
	return store.Close()
}
