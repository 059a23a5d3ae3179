package command

import "strings"

const (
	msgDeleteWhich     = "删哪个"
	msgDeleteNotMine   = "不是我发的你让我删？"
	msgDeleteNoImage   = "说鸡毛呢"
	msgDeleteNoURL     = "图寄了，不删了"
	msgNotSuperuser    = "你不是超管，不能用这个命令"
	msgSyncUsage       = "格式错误！\n请发送：/同步 [源ID] [目标ID] [关键词]"
	msgAliasAddUsage   = "格式：添加别名 <原名> <别名>"
	msgSuggestionsHead = "\n你是不是想找："
)

const helpText = "✨花活列表✨\n" +
	"1. 来只/来个[关键词]\n" +
	"   👉 获取表情包，例如：来只哆啦A梦、来个猫猫\n" +
	"2. 添加[关键词] [图片]\n" +
	"   👉 回复图片发送：添加哆啦A梦\n" +
	"   💡 添加 --force 跳过查重：添加哆啦A梦 --force\n" +
	"3. 删除[关键词] [图片]\n" +
	"   👉 回复图片发送：删除哆啦A梦\n" +
	"4. 添加别名 [原名] [别名]\n" +
	"   👉 例如：添加别名 哆啦A梦 蓝胖子\n" +
	"5. 删除别名 [别名]\n" +
	"   👉 例如：删除别名 蓝胖子\n" +
	"6. 查看别名 [关键词]\n" +
	"   👉 例如：查看别名 哆啦A梦\n\n" +
	"⚠️ 注意：同步功能仅限超管使用"

func msgSuggestions(names []string) string {
	return msgSuggestionsHead + strings.Join(names, "、")
}
