package orchestrator

// Pipeline phase names as they appear in progress events.
const (
	phaseSkeleton  = "skeleton_research"
	phaseDetails   = "detail_enrichment"
	phaseGaps      = "gap_analysis"
	phaseSynthesis = "synthesis"
)

// phasePercent gives the coarse completion estimate announced with each
// phase transition.
var phasePercent = map[string]int{
	phaseSkeleton:  5,
	phaseDetails:   25,
	phaseGaps:      60,
	phaseSynthesis: 85,
}

// progressMessages holds the user-facing phase copy per language. English
// is the fallback for unsupported languages.
var progressMessages = map[string]map[string]string{
	"en": {
		phaseSkeleton:  "Researching milestones across parallel threads...",
		phaseDetails:   "Digging into the details of each milestone...",
		phaseGaps:      "Checking the timeline for gaps and connections...",
		phaseSynthesis: "Writing the final synthesis...",
	},
	"zh": {
		phaseSkeleton:  "正在多线程并行研究里程碑事件...",
		phaseDetails:   "正在深入挖掘每个里程碑的细节...",
		phaseGaps:      "正在检查时间线的缺口与事件关联...",
		phaseSynthesis: "正在撰写最终综述...",
	},
	"ja": {
		phaseSkeleton:  "並行スレッドでマイルストーンを調査しています...",
		phaseDetails:   "各マイルストーンの詳細を掘り下げています...",
		phaseGaps:      "タイムラインの欠落と関連性を確認しています...",
		phaseSynthesis: "最終レポートを作成しています...",
	},
}

// progressMessage returns the localized copy for a phase.
func progressMessage(language, phase string) string {
	if msgs, ok := progressMessages[language]; ok {
		if msg, ok := msgs[phase]; ok {
			return msg
		}
	}
	return progressMessages["en"][phase]
}
