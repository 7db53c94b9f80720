// Command deltamain-cli is a small operator tool over a standalone
// deltamain store: exercise it with synthetic load, or force a GC sweep
// on demand.
//
// Grounded on maho's cmd package (other_examples-adjacent example repo
// leftmike-maho.v1/cmd/start.go) for the cobra.Command +
// pflag.FlagSet + package-level var shape, and on the teacher's
// cmd/driver/main.go for what a driver program built on this engine's
// facade actually does (issue transactions against the store and report
// results).
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"deltamain/snapshot/testsnapshot"
	"deltamain/store"
	"deltamain/table"
)

var (
	log = logrus.WithField("component", "deltamain-cli")

	verbose bool

	rootCmd = &cobra.Command{
		Use:   "deltamain-cli",
		Short: "Exercise a standalone deltamain store",
	}
)

func main() {
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}
	rootCmd.AddCommand(benchCmd, gcCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	benchKeys  = 10000
	benchTable = "bench"

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Insert N keys, read them back, and report the hit count",
		RunE:  runBench,
	}
)

func init() {
	fs := benchCmd.Flags()
	fs.IntVar(&benchKeys, "keys", benchKeys, "number of `keys` to insert")
	fs.StringVar(&benchTable, "table", benchTable, "`name` of the table to create")
}

type rawSchema struct{}

func (rawSchema) Validate([]byte) error { return nil }

func runBench(cmd *cobra.Command, args []string) error {
	runID := uuid.New()
	log := log.WithField("run", runID)

	mgr := testsnapshot.NewManager()
	st := store.New(mgr, store.Options{GCInterval: -1})
	defer st.Close()

	id, err := st.CreateTable(benchTable, rawSchema{})
	if err != nil {
		return err
	}

	for i := 0; i < benchKeys; i++ {
		tx := mgr.Begin()
		if err := st.Insert(id, uint64(i+1), []byte(fmt.Sprintf("value-%d", i)), tx); err != nil {
			tx.Abort()
			return err
		}
		tx.Commit()
	}

	read := mgr.Begin()
	defer read.Commit()
	hits := 0
	for i := 0; i < benchKeys; i++ {
		if _, err := st.Get(id, uint64(i+1), read); err == nil {
			hits++
		}
	}

	log.WithFields(logrus.Fields{"keys": benchKeys, "hits": hits}).Info("bench complete")
	st.ForceGC()
	log.Info("forced a GC sweep after load")
	return nil
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Create a table, insert one key, and force a GC sweep to demonstrate compaction",
	RunE:  runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	mgr := testsnapshot.NewManager()
	st := store.New(mgr, store.Options{GCInterval: -1})
	defer st.Close()

	id, err := st.CreateTable("demo", rawSchema{})
	if err != nil {
		return err
	}

	tx := mgr.Begin()
	if err := st.Insert(id, 1, []byte("hello"), tx); err != nil {
		return err
	}
	tx.Commit()

	st.ForceGC()

	read := mgr.Begin()
	defer read.Commit()
	res, err := st.Get(id, 1, read)
	if err != nil {
		return err
	}
	log.WithField("payload", string(res.Payload)).Info("survived GC")
	return nil
}

var _ table.Schema = rawSchema{}
