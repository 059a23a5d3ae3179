package service

import (
	"fmt"
	"strings"
)

// User-facing texts. The bot talks to Chinese-speaking groups.
const (
	msgDuplicate       = "水过了！你老冯的"
	msgCooldown        = "来太快了，歇会儿再来"
	msgAliasSameName   = "别名不能和原名一样"
	msgAliasBindFailed = "添加失败。"
	msgAliasRemoveFail = "删除失败。"
	msgAliasNoNames    = "怪事，没名字？"
	msgAliasUsage      = "格式：添加别名 <原名> <别名>"
	msgAliasRemoveWho  = "不说名字我删个der？猪吧"
	msgAliasListWho    = "查哪个你说啊？"
)

func msgNoMeme(name string) string {
	return fmt.Sprintf("一张%s都没有，来鸡毛？", name)
}

func msgAdded(name string) string {
	return fmt.Sprintf("成功添加%s！", name)
}

func msgAddFailed(err error) string {
	return fmt.Sprintf("添加失败：%v", err)
}

func msgDeleted(name string) string {
	return fmt.Sprintf("已删除！%sHouse", name)
}

func msgNothingDeleted(name string) string {
	return fmt.Sprintf("%s已经被爱死了...", name)
}

func msgDeleteFailed(err error, name string) string {
	return fmt.Sprintf("删除失败：%v，%s别走😭", err, name)
}

func msgFailed(err error) string {
	return fmt.Sprintf("出错了：%v", err)
}

func msgSyncNoSource(src, keyword string) string {
	return fmt.Sprintf("源 (%s) 没有关于 '%s' 的图片。", src, keyword)
}

func msgSyncEmptySource(src, keyword string) string {
	return fmt.Sprintf("源 (%s) 的 '%s' 是空的。", src, keyword)
}

func msgSyncDone(keyword string, copied, skipped int) string {
	return fmt.Sprintf("同步完成！\n关键字: %s\n成功同步: %d 张\n跳过重复: %d 张", keyword, copied, skipped)
}

func msgAliasAlreadySame(a, b string) string {
	return fmt.Sprintf("'%s' 和 '%s' 已经是同一个图库了。", a, b)
}

func msgAliasMerged(a, b string) string {
	return fmt.Sprintf("检测到 '%s' 和 '%s' 都有图库，已将它们合并！\n现在 '%s' 的图也都归 '%s' 啦。", a, b, b, a)
}

func msgAliasMergeFailed(err error) string {
	return fmt.Sprintf("合并失败：%v", err)
}

func msgAliasAdded(name string) string {
	return fmt.Sprintf("成功！以后叫 '%s' 也可以。", name)
}

func msgAliasNeither(a, b string) string {
	return fmt.Sprintf("找不到 '%s' 也没有 '%s'，你先添加点图呗？", a, b)
}

func msgAliasNotFound(name string) string {
	return fmt.Sprintf("找不到 '%s'", name)
}

func msgAliasLastName(name string) string {
	return fmt.Sprintf("'%s' 是这个图库唯一的这类名字了，删了就找不到了！", name)
}

func msgAliasRemoved(name string) string {
	return fmt.Sprintf("已删除名字 '%s'", name)
}

func msgLibraryNotFound(name string) string {
	return fmt.Sprintf("找不到图库 '%s'", name)
}

func msgAliasList(names []string) string {
	return "这个图库的名字有：\n" + strings.Join(names, "、")
}
