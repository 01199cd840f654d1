package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/z-wentao/voicestudio/pkg/client"
	"github.com/z-wentao/voicestudio/pkg/registry"
)

func main() {
	// 定义命令行参数
	server := flag.String("server", "http://localhost:8080", "VoiceStudio 服务地址")
	custom := flag.Bool("custom", false, "只列出自定义声音")
	query := flag.String("q", "", "按名称筛选")
	use := flag.String("use", "", "选中指定 ID 的声音")
	flag.Parse()

	c := client.NewClient(strings.TrimSuffix(*server, "/"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *use != "" {
		st, err := c.UseVoice(ctx, *use)
		if err != nil {
			fmt.Printf("❌ 选中失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ 已选中: %s (%s)，当前页面 %s/%s\n", st.SelectedVoice.Name, st.SelectedVoice.ID, st.Module, st.Page)
		return
	}

	filter := registry.VoiceFilter{Query: *query}
	if *custom {
		filter.Tab = registry.TabCustom
	}

	// 获取声音列表
	fmt.Println("🔍 正在获取声音列表...")
	voices, err := c.ListVoices(ctx, filter)
	if err != nil {
		fmt.Printf("❌ 获取失败: %v\n", err)
		os.Exit(1)
	}

	if len(voices) == 0 {
		fmt.Println("\n📭 没有符合条件的声音")
		if *custom {
			fmt.Println("\n💡 提示：在「声音克隆」页面上传或录制样本即可创建自定义声音")
		}
		return
	}

	selected := ""
	if st, err := c.GetSelection(ctx); err == nil {
		selected = st.SelectedVoice.ID
	}

	fmt.Printf("\n✅ 找到 %d 个声音：\n\n", len(voices))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for i, v := range voices {
		marker := ""
		if v.ID == selected {
			marker = "  👈 当前选中"
		}
		fmt.Printf("🎙️ %s%s\n", v.Name, marker)
		fmt.Printf("   ID:   %s\n", v.ID)
		fmt.Printf("   类型: %s / %s / %s\n", v.Gender, v.Language, v.Category)
		if len(v.Tags) > 0 {
			fmt.Printf("   标签: %v\n", v.Tags)
		}
		if i < len(voices)-1 {
			fmt.Println("   ────────────────────────────────────────")
		}
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("\n💡 使用方法：")
	fmt.Println("  go run cmd/list-voices/main.go -use=声音ID")
}
