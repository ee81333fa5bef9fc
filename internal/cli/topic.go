package cli

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TemirB/save-cart-for-later/internal/events"
)

// NewEnsureTopicCommand creates the ensure-topic command.
func NewEnsureTopicCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		brokers     string
		topic       string
		partitions  int
		replication int
	)

	cmd := &cobra.Command{
		Use:   "ensure-topic",
		Short: "Create the cart events topic if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := splitBrokers(brokers)
			if len(list) == 0 {
				return errors.New("--brokers or KAFKA_BROKERS is required")
			}
			logger, err := rootOpts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return events.EnsureTopic(cmd.Context(), list, topic, partitions, replication, logger)
		},
	}
	cmd.Flags().StringVar(&brokers, "brokers", envOr("KAFKA_BROKERS", ""), "comma separated broker list")
	cmd.Flags().StringVar(&topic, "topic", envOr("KAFKA_TOPIC", "saved-carts"), "topic name")
	cmd.Flags().IntVar(&partitions, "partitions", envInt("KAFKA_PARTITIONS", 3), "partition count")
	cmd.Flags().IntVar(&replication, "replication", envInt("KAFKA_REPLICATION", 1), "replication factor")

	return cmd
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(envOr(k, ""))
	if err != nil {
		return def
	}
	return n
}
