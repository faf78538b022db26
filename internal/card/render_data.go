package card

import "eCard/internal/profile"

// RenderWarning 描述渲染数据准备过程中可以容忍的问题，例如头像对象缺失。
type RenderWarning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RenderData 是内部接口返回给导出 Worker 的数据：头像已内联为 data URI。
type RenderData struct {
	Profile  profile.Profile `json:"profile"`
	Warnings []RenderWarning `json:"warnings,omitempty"`
}
