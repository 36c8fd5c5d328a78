package rpccontract

const (
	ServiceName = "skillbench.v1.SkillBench"
)

const (
	MethodGetHealth      = "/" + ServiceName + "/GetHealth"
	MethodRecommend      = "/" + ServiceName + "/Recommend"
	MethodListTasks      = "/" + ServiceName + "/ListTasks"
	MethodListSkills     = "/" + ServiceName + "/ListSkills"
	MethodGetSkill       = "/" + ServiceName + "/GetSkill"
	MethodGetSkillScores = "/" + ServiceName + "/GetSkillScores"
	MethodListRuns       = "/" + ServiceName + "/ListRuns"
	MethodGetTrial       = "/" + ServiceName + "/GetTrial"
	MethodExecuteTrial   = "/" + ServiceName + "/ExecuteTrial"
	MethodOrchestrate    = "/" + ServiceName + "/OrchestrateTrial"
)

// WriteMethods need an authorized execution token.
var WriteMethods = map[string]struct{}{
	MethodExecuteTrial: {},
	MethodOrchestrate:  {},
}
