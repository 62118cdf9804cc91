package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zeur-core/internal/notify"
	"zeur-core/internal/service/mq"
)

var (
	eventsGroup    string
	eventsConsumer string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "订阅交易终态事件 (Kafka 或 Redis Stream)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		core, err := loadCore(ctx, false)
		if err != nil {
			return err
		}
		defer core.Close()

		consumer, err := core.NewConsumer(eventsGroup, eventsConsumer)
		if err != nil {
			return err
		}
		defer consumer.Close()

		fmt.Printf("正在监听 %s ... (Ctrl+C 退出)\n", cfg.Kafka.Topic)
		err = consumer.Subscribe(ctx, cfg.Kafka.Topic, func(msg *mq.Message) error {
			var ev notify.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				// 无法解析的消息直接确认，避免反复投递
				fmt.Fprintf(os.Stderr, "跳过无法解析的消息 %s: %v\n", msg.ID, err)
				return nil
			}
			fmt.Println(describeEvent(ev))
			return nil
		})
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

func describeEvent(ev notify.Event) string {
	line := fmt.Sprintf("[%s] %-9s %-9s %s %s %s", ev.At.Format("15:04:05"), ev.Flow, ev.Result, ev.Account, ev.Amount, ev.Asset)
	if ev.TxHash != "" {
		line += " tx=" + ev.TxHash
	}
	if ev.Error != "" {
		line += fmt.Sprintf(" (%s: %s)", ev.ErrorKind, ev.Error)
	}
	return line
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "zeur-cli", "消费者组")
	eventsCmd.Flags().StringVar(&eventsConsumer, "name", "cli-1", "消费者名称 (Redis Stream)")
	rootCmd.AddCommand(eventsCmd)
}
