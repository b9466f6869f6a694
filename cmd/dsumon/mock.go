package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"dsumotion/pkg/mockdsu"
	"dsumotion/pkg/protocol"
)

func newMockCmd(log *slog.Logger) *cobra.Command {
	var (
		addr string
		name string
		pad  int
	)
	wave := mockdsu.DefaultWave()

	cmd := &cobra.Command{
		Use: "mock",

		Short: "Run a DSU server that plays a synthetic motion profile",

		Long: `mock answers DSU version, port-info and pad-data requests with a slow
sway and a burst every --every, cycling through forward, right, backward
and left swings and a shake. The server gets a random name unless --name
is given.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			if pad < 0 || pad > 3 {
				return fmt.Errorf("--pad out of range [0, 3]: %d", pad)
			}
			if wave.Rate <= 0 {
				return fmt.Errorf("--rate must be positive: %d", wave.Rate)
			}

			srv, err := mockdsu.Listen(addr, wave,
				mockdsu.WithLogger(log),
				mockdsu.WithName(name),
				mockdsu.WithPad(uint8(pad)),
			)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			defer srv.Close()

			log.Info("Mock DSU server ready",
				"addr", srv.Addr(),
				"name", srv.Name(),
				"pad", pad,
				"rate", wave.Rate,
			)
			return srv.Serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort), "UDP listen address")
	f.StringVar(&name, "name", "", "server name for logs (default: random)")
	f.IntVar(&pad, "pad", 0, "pad slot to answer for")
	f.IntVar(&wave.Rate, "rate", wave.Rate, "samples per second")
	f.DurationVar(&wave.Every, "every", wave.Every, "time between gesture bursts")
	f.DurationVar(&wave.Burst, "burst", wave.Burst, "length of one burst")
	f.Float32Var(&wave.Peak, "peak", wave.Peak, "burst peak acceleration in g")

	return cmd
}
