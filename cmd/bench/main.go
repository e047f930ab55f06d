package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/code-100-precent/SpeechGate/pkg/bench"
)

func main() {
	var opts bench.Options
	flag.StringVar(&opts.ServerURL, "server", "ws://127.0.0.1:8000", "服务地址")
	flag.StringVar(&opts.Token, "token", "", "X-NLS-Token")
	flag.StringVar(&opts.Mode, "mode", "asr", "压测模式: asr 或 tts")
	flag.IntVar(&opts.Sessions, "sessions", 10, "并发会话数")
	flag.StringVar(&opts.Text, "text", "", "tts合成文本")
	flag.IntVar(&opts.AudioMs, "audio-ms", 2000, "asr每会话音频时长(毫秒)")
	flag.IntVar(&opts.SampleRate, "sample-rate", 16000, "采样率")
	flag.DurationVar(&opts.Timeout, "timeout", 120*time.Second, "单会话超时")
	flag.Parse()

	if opts.Mode != "asr" && opts.Mode != "tts" {
		fmt.Fprintln(os.Stderr, "mode必须是 asr 或 tts")
		os.Exit(2)
	}

	result := bench.Run(opts)
	fmt.Print(result.Report())
	for _, s := range result.Sessions {
		if s.Err != nil {
			fmt.Printf("session %s failed: %v\n", s.ID, s.Err)
		}
	}
	if result.Failures > 0 {
		os.Exit(1)
	}
}
