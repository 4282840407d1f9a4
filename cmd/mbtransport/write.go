// cmd/mbtransport/write.go
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

type writeFlags struct {
	endpoint string
	unitID   uint8
	fc       uint8
	address  uint16
	values   string
	maxTries int
	timeout  time.Duration
}

func newWriteCmd(g *globalFlags) *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Run a single write against a slave",
		Example: `  mbtransport write --endpoint tcp://10.0.0.5:502 --fc 16 --address 100 --values 1,2,3
  mbtransport write --endpoint tcp://10.0.0.5:502 --fc 5 --address 7 --values true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.endpoint == "" {
				return fmt.Errorf("required flag --endpoint not set")
			}
			if flags.values == "" {
				return fmt.Errorf("required flag --values not set")
			}
			ep, err := endpoint.Parse(flags.endpoint)
			if err != nil {
				return err
			}
			bp, err := writeBlueprint(flags)
			if err != nil {
				return err
			}

			logger, err := g.logger()
			if err != nil {
				return err
			}
			m := manager.New(logger, manager.DefaultOptions())
			defer m.Close()

			done := make(chan error, 1)
			_, err = m.SubmitWrite(&manager.WriteTask{
				Endpoint: ep,
				Request:  bp,
				MaxTries: flags.maxTries,
				Callback: manager.WriteCallbackFuncs{
					Response: func(transaction.WriteBlueprint, transaction.WriteAck) { done <- nil },
					Error:    func(_ transaction.WriteBlueprint, err error) { done <- err },
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			select {
			case err := <-done:
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", bp)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("write %s: %w", bp, ctx.Err())
			}
		},
	}

	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Slave endpoint, e.g. tcp://host:502 (required)")
	cmd.Flags().Uint8Var(&flags.unitID, "unit", 1, "Slave unit id")
	cmd.Flags().Uint8Var(&flags.fc, "fc", 16, "Write function code: 5, 6, 15 or 16")
	cmd.Flags().Uint16Var(&flags.address, "address", 0, "Start address")
	cmd.Flags().StringVar(&flags.values, "values", "", "Comma separated values; coils accept 0/1/true/false (required)")
	cmd.Flags().IntVar(&flags.maxTries, "max-tries", 3, "Attempts before giving up")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Overall deadline")

	return cmd
}

// writeBlueprint parses --values for the requested function code.
// Quantity limits are left to the request builder.
func writeBlueprint(flags *writeFlags) (transaction.WriteBlueprint, error) {
	bp := transaction.WriteBlueprint{
		UnitID:       flags.unitID,
		FunctionCode: transaction.FunctionCode(flags.fc),
		Reference:    flags.address,
	}
	if !bp.FunctionCode.IsWrite() {
		return bp, fmt.Errorf("fc %d is not a write function", flags.fc)
	}

	for _, raw := range strings.Split(flags.values, ",") {
		v := strings.TrimSpace(raw)
		if bp.FunctionCode.IsBitAccess() {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return bp, fmt.Errorf("invalid coil value %q", v)
			}
			bp.Coils = append(bp.Coils, b)
			continue
		}
		n, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return bp, fmt.Errorf("invalid register value %q", v)
		}
		bp.Registers = append(bp.Registers, uint16(n))
	}

	if _, err := transaction.BuildRequest(bp); err != nil {
		return bp, err
	}
	return bp, nil
}
