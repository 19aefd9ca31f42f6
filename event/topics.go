package event

// 事件总线主题约定。
// 全量订阅方用 TopicChanges，只关心单个分类的订阅方用 CategoryTopic。
const (
	// TopicChanges 所有配置变更事件
	TopicChanges = "config.changes"

	// TopicReload 热重载生命周期事件
	TopicReload = "config.reload"

	// TopicHealth 热重载协调器的健康检查报告
	TopicHealth = "config.health"
)

// CategoryTopic 返回指定分类的变更主题，如 "config.changes.database"
func CategoryTopic(category string) string {
	return TopicChanges + "." + category
}

// ReloadCategoryTopic 返回指定分类的热重载主题，如 "config.reload.database"
func ReloadCategoryTopic(category string) string {
	return TopicReload + "." + category
}
