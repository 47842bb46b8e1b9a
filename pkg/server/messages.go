package server

// User-facing messages. The browser shows these verbatim.
const (
	msgChatFailed = "Failed to fetch response from OpenAI"
	msgStreamErr  = "Stream error"

	msgGeminiKeyMissing = "未配置 Gemini API Key（GEMINI_API_KEY 或前端传 apiKey）"
	msgArkKeyMissing    = "服务端未配置 ARK_API_KEY"
	msgGenerateRetry    = "生成失败，请稍后重试"
	msgMaterialMissing  = "请提供材料（转写/文本/手记/PDF均可）"

	msgPromptMissing   = "请输入提示词"
	msgImageGenFailed  = "Failed to generate image"
	msgImageMissing    = "请选择要上传的图片"
	msgImageOnly       = "只支持图片文件"
	msgImageTooLarge   = "文件大小不能超过 10MB"
	msgUploadFailed    = "文件上传失败"
	msgFileMissing     = "缺少文件"
	msgFileTooLarge    = "文件大小不能超过 20MB"
	msgFileUnsupported = "仅支持 txt/md/pdf 文件"
	msgParseFailed     = "解析失败，请重试"

	msgVideoParamsMissing = "缺少必要参数：图片URL和提示词"
	msgVideoNotConfigured = "服务器配置错误：缺少API密钥或配置"
	msgVideoSubmitFailed  = "视频生成失败"
	msgVideoNoTaskID      = "视频生成服务响应格式错误，无法获取任务ID"
	msgVideoSubmitted     = "视频生成任务已提交，请等待处理完成"
	msgTaskIDMissing      = "缺少任务ID参数"
	msgVideoStatusFailed  = "查询视频生成状态失败"
	msgVideoNoStatus      = "状态查询服务响应格式错误，无法获取任务状态"
	msgVideoTimeout       = "视频生成超时，请稍后查询"
	msgInternal           = "服务器内部错误"
	msgUnknown            = "未知错误"

	msgImageURLMissing = "缺少图片URL"
	msgDownloadFailed  = "下载图片失败，请重试"

	msgURLMissing    = "请提供有效的URL"
	msgURLInvalid    = "URL格式不正确"
	msgURLNoContent  = "无法提取网页内容，请手动复制文章内容"
	msgSummaryPrompt = "请搜索并总结这篇公众号文章："

	msgPromptNotFound = "模板不存在"
	msgPromptBuiltin  = "内置模板不能删除"
)
