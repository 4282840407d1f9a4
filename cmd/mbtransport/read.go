// cmd/mbtransport/read.go
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

type readFlags struct {
	endpoint string
	unitID   uint8
	fc       uint8
	address  uint16
	quantity uint16
	maxTries int
	timeout  time.Duration
}

func newReadCmd(g *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Run a single read against a slave",
		Example: `  mbtransport read --endpoint tcp://10.0.0.5:502 --unit 1 --fc 3 --address 0 --quantity 10
  mbtransport read --endpoint "serial:///dev/ttyUSB0?baud=19200&encoding=rtu" --fc 1 --quantity 16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.endpoint == "" {
				return fmt.Errorf("required flag --endpoint not set")
			}
			ep, err := endpoint.Parse(flags.endpoint)
			if err != nil {
				return err
			}
			bp := transaction.ReadBlueprint{
				UnitID:       flags.unitID,
				FunctionCode: transaction.FunctionCode(flags.fc),
				Reference:    flags.address,
				Length:       flags.quantity,
			}
			if !bp.FunctionCode.IsRead() {
				return fmt.Errorf("fc %d is not a read function", flags.fc)
			}

			logger, err := g.logger()
			if err != nil {
				return err
			}
			m := manager.New(logger, manager.DefaultOptions())
			defer m.Close()

			type outcome struct {
				res transaction.ReadResult
				err error
			}
			done := make(chan outcome, 1)

			_, err = m.SubmitRead(&manager.PollTask{
				Endpoint: ep,
				Request:  bp,
				MaxTries: flags.maxTries,
				Callback: manager.ReadCallbackFuncs{
					Data:  func(_ transaction.ReadBlueprint, res transaction.ReadResult) { done <- outcome{res: res} },
					Error: func(_ transaction.ReadBlueprint, err error) { done <- outcome{err: err} },
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			select {
			case o := <-done:
				if o.err != nil {
					return o.err
				}
				printReadResult(cmd.OutOrStdout(), bp, o.res)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("read %s: %w", bp, ctx.Err())
			}
		},
	}

	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Slave endpoint, e.g. tcp://host:502 (required)")
	cmd.Flags().Uint8Var(&flags.unitID, "unit", 1, "Slave unit id")
	cmd.Flags().Uint8Var(&flags.fc, "fc", 3, "Read function code: 1, 2, 3 or 4")
	cmd.Flags().Uint16Var(&flags.address, "address", 0, "Start address")
	cmd.Flags().Uint16Var(&flags.quantity, "quantity", 1, "Number of coils or registers")
	cmd.Flags().IntVar(&flags.maxTries, "max-tries", 3, "Attempts before giving up")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Overall deadline")

	return cmd
}

func printReadResult(w io.Writer, bp transaction.ReadBlueprint, res transaction.ReadResult) {
	for i := 0; i < res.Len(); i++ {
		addr := int(bp.Reference) + i
		if res.Bits != nil {
			fmt.Fprintf(w, "%d\t%t\n", addr, res.Bits[i])
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t0x%04X\n", addr, res.Registers[i], res.Registers[i])
	}
}
