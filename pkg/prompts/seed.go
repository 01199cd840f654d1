package prompts

import "time"

var seedEpoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// DefaultPrompts 内置提示词，按列表展示顺序排列
func DefaultPrompts() []Prompt {
	items := []Prompt{
		{
			ID: "p_academic_polish", Title: "学术论文润色",
			Description: "把草稿改写成符合期刊要求的学术表达，保留原意并统一术语",
			Content:     "你是一位资深期刊编辑。请逐段润色以下论文草稿……",
			Category:    "大模型", Brand: "GPT", Version: "GPT-4o",
			Tags: []string{"学术", "论文", "写作"}, Author: "Lumina",
		},
		{
			ID: "p_anime_portrait", Title: "二次元角色立绘",
			Description: "日系赛璐璐风格的全身立绘，附带服装细节描述",
			Content:     "anime style, full body portrait, cel shading, detailed costume……",
			Category:    "图片", Brand: "GEMINI", Version: "GEMINI3",
			Tags: []string{"二次元", "设计", "创意"}, Author: "Mika",
		},
		{
			ID: "p_realistic_product", Title: "写实产品摄影",
			Description: "棚拍质感的电商主图，柔光箱布光与浅景深",
			Content:     "studio product photography, softbox lighting, shallow depth of field……",
			Category:    "图片", Brand: "GEMINI", Version: "GEMINI2.5",
			Tags: []string{"写实", "设计", "营销"}, Author: "Orbit",
		},
		{
			ID: "p_react_component", Title: "React 组件重构",
			Description: "拆分臃肿的组件，抽取自定义 Hook 并补充类型",
			Content:     "请把下面的组件拆分为展示组件与容器组件……",
			Category:    "编程", Brand: "CLAUDE", Version: "CLAUDE 3.5",
			Tags: []string{"React", "提示词工程"}, Author: "Dev Kit",
		},
		{
			ID: "p_python_script", Title: "Python 数据清洗脚本",
			Description: "读取 CSV，处理缺失值与重复行，输出统计摘要",
			Content:     "写一个脚本：读取 data.csv，删除重复行……",
			Category:    "编程", Brand: "GPT", Version: "O1",
			Tags: []string{"Python"}, Author: "Dev Kit",
		},
		{
			ID: "p_podcast_voice", Title: "播客开场白配音",
			Description: "三十秒的节目开场，语气轻松，适合语音合成朗读",
			Content:     "为一档科技播客写一段开场白，控制在三十秒以内……",
			Category:    "语音", Brand: "GPT", Version: "GPT-4",
			Tags: []string{"创意", "营销"}, Author: "Lumina",
		},
		{
			ID: "p_legal_translate", Title: "法律合同翻译",
			Description: "中英双语对照，保留条款编号与专业术语",
			Content:     "请将以下合同条款翻译为英文，保持条款编号……",
			Category:    "大模型", Brand: "CLAUDE", Version: "CLAUDE 3",
			Tags: []string{"翻译", "法律", "职场"}, Author: "Orbit",
		},
		{
			ID: "p_weekly_report", Title: "周报生成助手",
			Description: "根据零散的工作记录整理出结构清晰的周报",
			Content:     "以下是我本周的工作记录，请整理为：本周完成、问题与风险、下周计划……",
			Category:    "大模型", Brand: "GEMINI", Version: "GEMINI FLASH",
			Tags: []string{"职场", "写作"}, Author: "Mika",
		},
	}

	for i := range items {
		items[i].CreatedAt = seedEpoch.Add(-time.Duration(i) * time.Hour)
	}
	return items
}
